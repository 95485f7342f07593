// Package gittransport mirrors repositories in-process with go-git.
package gittransport
