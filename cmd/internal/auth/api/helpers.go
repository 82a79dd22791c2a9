package authapi

import (
	"net"
	"net/http"
	"strings"

	"axon/cmd/identity"
	"axon/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		IsAdmin:          u.IsAdmin,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}

func toAuthResponse(u identity.User, issued session.Issued) authResponse {
	return authResponse{
		UserID:           u.ID,
		Username:         u.Username,
		Email:            u.Email,
		IsAdmin:          u.IsAdmin,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Token:            issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
	}
}

// clientIP extracts the caller's IP. X-Forwarded-For is honored only when
// the deployment explicitly trusts its proxy.
func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
	}
	return net.ParseIP(host)
}
