package source

import (
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/bwmarrin/discordgo"
)

// IsPermission reports whether err is a permission-denied class failure:
// the channel (or guild) exists but the token cannot read it. Callers skip
// the channel and keep whatever cursor exists.
func IsPermission(err error) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a timeout/connection-reset class
// failure. Callers skip the channel this run; the unchanged cursor retries
// it on the next invocation.
func IsTransient(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode >= 500
	}
	return false
}
