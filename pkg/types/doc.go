// Package types defines the configuration and dashboard entity types, the
// storage ports (StorageArea, RemoteStore) and the standard errors shared by
// every tabshelf component.
//
// A configuration (UserConfig) names one dataset (ConfigData) and where it
// lives: either a key in the synced local storage area or a record in a
// remote store. AppData is the registry of all configurations and records
// which one is active.
package types
