// Package gitlab talks to the GitLab REST API (v4) to look up and create the
// groups and projects that receive migrated repositories.
package gitlab
