// Command helloworld is an example service built on gowizard:
//
//	helloworld server example.yml
//	helloworld check example.yml
//	helloworld render --name ada example.yml
package main

import "github.com/kbukum/gowizard/cli"

func main() {
	cli.Main[*HelloWorldConfiguration](NewApplication())
}
