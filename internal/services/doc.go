// Package services holds the error taxonomy shared by external service
// clients and the stage implementations that call them.
package services
