package guard

import (
	"strings"

	"github.com/harborline/storefront/internal/domain"
)

// Page paths the guard makes decisions about.
const (
	PathHome            = "/"
	PathLogin           = "/login"
	PathRegister        = "/register"
	PathForgotPassword  = "/forgot-password"
	PathDashboard       = "/dashboard"
	PathAccount         = "/account"
	PathAdmin           = "/admin"
	PathAdminOnboarding = "/admin/onboarding"
	PathVerifyEmail     = "/verify-email"
)

// RouteClass partitions the page surface by what the guard requires of the
// caller.
type RouteClass int

const (
	// RouteOpen needs no authentication and applies no gates.
	RouteOpen RouteClass = iota

	// RoutePublicAuth is a login/register style form. Authenticated callers
	// are redirected away to their dashboard.
	RoutePublicAuth

	// RouteCustomer requires an authenticated non-admin.
	RouteCustomer

	// RouteAdmin requires an authenticated admin.
	RouteAdmin

	// RouteVerification is the email verification page. It requires
	// authentication but tolerates an unverified email.
	RouteVerification
)

// Classify maps a request path onto its route class.
func Classify(path string) RouteClass {
	switch {
	case path == PathLogin, path == PathRegister, path == PathForgotPassword:
		return RoutePublicAuth
	case path == PathAdmin, strings.HasPrefix(path, PathAdmin+"/"):
		return RouteAdmin
	case path == PathDashboard, strings.HasPrefix(path, PathDashboard+"/"),
		path == PathAccount, strings.HasPrefix(path, PathAccount+"/"):
		return RouteCustomer
	case path == PathVerifyEmail:
		return RouteVerification
	default:
		return RouteOpen
	}
}

// DashboardFor returns the landing page for a role.
func DashboardFor(role string) string {
	if role == domain.RoleAdmin {
		return PathAdmin
	}
	return PathDashboard
}
