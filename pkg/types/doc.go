// Package types defines the entity types, enumerations, configuration, and
// standard errors shared by the medtrack record store, its backup and sync
// collaborators, and the CLI.
//
// Records serialize with the camelCase field names of the on-device format so
// that data written by earlier releases loads unchanged.
package types
