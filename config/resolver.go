package config

import (
	"fmt"
	"strings"
)

// Resolver finds configuration and env files in standard locations when
// none is given explicitly.
type Resolver struct {
	FileSystem FileSystem
}

// NewResolver searches the local file system.
func NewResolver() *Resolver {
	return &Resolver{FileSystem: &RealFileSystem{}}
}

// FindConfigFile searches for <app>.yml or config.yml next to the working
// directory, under cmd/<app>/ and under config/. It returns "" when nothing
// is found.
func (r *Resolver) FindConfigFile(appName string) string {
	shortName := shortName(appName)
	searchPaths := []string{
		fmt.Sprintf("./%s.yml", appName),
		fmt.Sprintf("./%s.yaml", appName),
		fmt.Sprintf("./cmd/%s/config.yml", appName),
		fmt.Sprintf("./cmd/%s/config.yml", shortName),
		"./config/config.yml",
		"./config.yml",
		"./config.yaml",
	}
	for _, path := range searchPaths {
		if r.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// FindEnvFile searches for .env.<app> and .env files next to the working
// directory and under cmd/<app>/ and config/.
func (r *Resolver) FindEnvFile(appName string) string {
	envFiles := []string{fmt.Sprintf(".env.%s", appName), ".env"}
	dirs := []string{".", fmt.Sprintf("./cmd/%s", appName), fmt.Sprintf("./cmd/%s", shortName(appName)), "./config"}
	for _, name := range envFiles {
		for _, dir := range dirs {
			path := dir + "/" + name
			if r.FileSystem.Exists(path) {
				return path
			}
		}
	}
	return ""
}

func shortName(appName string) string {
	if idx := strings.LastIndex(appName, "-"); idx != -1 {
		return appName[idx+1:]
	}
	return appName
}
