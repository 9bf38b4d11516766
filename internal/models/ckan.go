package models

import "encoding/json"

// These structs mirror the JSON returned by the CKAN action API.
// Only the fields the refresher reads are declared.

// ActionResponse is the envelope every CKAN action returns.
type ActionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *ActionError    `json:"error,omitempty"`
}

// ActionError is the error object of a failed CKAN action.
type ActionError struct {
	Message string `json:"message"`
	Type    string `json:"__type"`
}

// Package is a CKAN dataset and its downloadable resources.
type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// Resource is one downloadable file of a package. DatastoreActive is nil when
// the catalog omitted the flag.
type Resource struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Format          string `json:"format"`
	URL             string `json:"url"`
	DatastoreActive *bool  `json:"datastore_active"`
}
