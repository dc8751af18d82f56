// Package api serves the document service over HTTP.
package api
