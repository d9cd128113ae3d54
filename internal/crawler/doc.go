// Package crawler holds the domain types, collaborator interfaces and error
// taxonomy shared by the keyword resolver, volume probe, region planner,
// pagination crawler, page parser and run coordinator.
package crawler
