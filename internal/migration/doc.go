// Package migration implements the repository migration workflow that moves a
// batch of repositories from a source git host into a GitLab-style destination.
//
// Each task is validated, mirror-cloned into a private workspace, given a
// destination project whose namespace hierarchy is created on demand, and
// force-pushed with every branch and tag. A failing task never stops the
// batch, and its workspace is always released.
package migration
