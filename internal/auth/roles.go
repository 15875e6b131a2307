package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

// Role groups used by route registration.
var (
	AccountAdmins      = []domain.Role{domain.RoleDevAdmin, domain.RoleSoftwareAdmin}
	RegistrationAdmins = []domain.Role{domain.RoleDevAdmin, domain.RoleSoftwareAdmin, domain.RoleDelegateAffairs}
	CommitteeAdmins    = []domain.Role{domain.RoleDevAdmin}
	MailerAdmins       = []domain.Role{domain.RoleDevAdmin, domain.RoleSoftwareAdmin, domain.RoleDelegateAffairs}
)

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Account == nil {
			return errorutil.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Account.Role]; !exists {
			return errorutil.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
