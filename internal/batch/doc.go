// Package batch turns persisted migration configuration into validated
// credentials and an ordered list of migration tasks.
package batch
