// Package gitcli mirrors repositories by running the git executable.
package gitcli
