// Package application provides application initialization and dependency wiring.
// Storage, the report builder and the currency formatter are passed in as
// Components rather than registered globally; the package builds the API
// router, the report dashboard and the HTTP server from them.
package application
