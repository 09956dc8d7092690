package main

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/kbukum/gowizard/admin"
)

// echoTask writes its message parameters back, one per line.
func echoTask() admin.Task {
	return admin.NewTask("echo", func(_ context.Context, params url.Values, w io.Writer) error {
		for _, msg := range params["message"] {
			if _, err := fmt.Fprintln(w, msg); err != nil {
				return err
			}
		}
		return nil
	})
}
