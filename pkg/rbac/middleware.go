package rbac

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/contextkeys"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/scope"
)

// ProjectIDVar is the route variable holding the project id
const ProjectIDVar = "projectID"

// ScopeHeader optionally carries a JSON scope the request is restricted to,
// e.g. ["electrical"] or {"floors":["3"]}
const ScopeHeader = "X-Access-Scope"

// CapabilityMiddleware guards gorilla/mux routes with capability checks. The
// authenticated user id must already be in the request context.
type CapabilityMiddleware struct {
	mapper *CapabilityMapper
	logger *observability.Logger
}

// NewCapabilityMiddleware creates a new capability middleware
func NewCapabilityMiddleware(mapper *CapabilityMapper, logger *observability.Logger) *CapabilityMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CapabilityMiddleware{mapper: mapper, logger: logger}
}

// RequireCapability creates middleware that requires capability on the
// project named by the route's projectID variable
func (cm *CapabilityMiddleware) RequireCapability(capability Capability) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if contextkeys.GetRequestID(ctx) == "" {
				ctx = contextkeys.WithRequestID(ctx, uuid.NewString())
				r = r.WithContext(ctx)
			}
			logger := observability.FromContext(ctx, cm.logger)

			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			projectID := mux.Vars(r)[ProjectIDVar]
			if projectID == "" {
				http.Error(w, "Project ID required", http.StatusBadRequest)
				return
			}

			requested := scope.None()
			if raw := r.Header.Get(ScopeHeader); raw != "" {
				if err := requested.UnmarshalJSON([]byte(raw)); err != nil {
					http.Error(w, "Invalid scope header", http.StatusBadRequest)
					return
				}
			}

			allowed, err := cm.mapper.HasScopedCapability(ctx, userID, projectID, capability, requested)
			if err != nil {
				logger.WithAccess(userID, projectID).WithError(err).Error("capability check failed")
				http.Error(w, "Permission check failed", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logger.WithAccess(userID, projectID).
					WithField("capability", string(capability)).
					Debug("capability denied")
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
