// Package service is the document service shared by the HTTP API and the
// replica server, plus its logging and metrics middlewares.
package service
