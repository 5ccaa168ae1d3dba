package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of operator roles. The SUPERVISEUR spelling is the
// wire format shared with the other services and must not be normalised.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISEUR"
	RoleAgent      Role = "AGENT"
)

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleSupervisor, RoleAgent}
}

// ParseRole matches the role enumeration case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RoleAdmin):
		return RoleAdmin, nil
	case string(RoleSupervisor):
		return RoleSupervisor, nil
	case string(RoleAgent):
		return RoleAgent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Capability names one permitted action, e.g. FLIGHT_READ.
type Capability string

const (
	CapFlightAdmin      Capability = "FLIGHT_ADMIN"
	CapFlightCreate     Capability = "FLIGHT_CREATE"
	CapFlightUpdate     Capability = "FLIGHT_UPDATE"
	CapFlightRead       Capability = "FLIGHT_READ"
	CapStaffAdmin       Capability = "STAFF_ADMIN"
	CapStaffCreate      Capability = "STAFF_CREATE"
	CapStaffUpdate      Capability = "STAFF_UPDATE"
	CapStaffRead        Capability = "STAFF_READ"
	CapEvaluationCreate Capability = "EVALUATION_CREATE"
	CapEvaluationUpdate Capability = "EVALUATION_UPDATE"
	CapEvaluationRead   Capability = "EVALUATION_READ"
	CapScheduleCreate   Capability = "SCHEDULE_CREATE"
	CapScheduleUpdate   Capability = "SCHEDULE_UPDATE"
	CapScheduleRead     Capability = "SCHEDULE_READ"
	CapChatAdmin        Capability = "CHAT_ADMIN"
	CapChatCreate       Capability = "CHAT_CREATE"
	CapChatRead         Capability = "CHAT_READ"
	CapChatSend         Capability = "CHAT_SEND"
)

// roleCapabilities maps each role to its capability grant in a fixed order.
// The slices are never mutated; CapabilitiesFor hands out copies.
var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapFlightAdmin, CapFlightCreate, CapFlightUpdate, CapFlightRead,
		CapStaffAdmin, CapStaffCreate, CapStaffUpdate, CapStaffRead,
		CapEvaluationCreate, CapEvaluationUpdate, CapEvaluationRead,
		CapScheduleCreate, CapScheduleUpdate, CapScheduleRead,
		CapChatAdmin, CapChatCreate, CapChatRead, CapChatSend,
	},
	RoleSupervisor: {
		CapFlightCreate, CapFlightUpdate, CapFlightRead,
		CapStaffCreate, CapStaffUpdate, CapStaffRead,
		CapEvaluationCreate, CapEvaluationUpdate, CapEvaluationRead,
		CapScheduleCreate, CapScheduleUpdate, CapScheduleRead,
		CapChatCreate, CapChatRead, CapChatSend,
	},
	RoleAgent: {
		CapFlightRead, CapStaffRead, CapEvaluationRead, CapScheduleRead,
		CapChatRead, CapChatSend,
	},
}

// RoleMarker returns the coarse-grained ROLE_<name> capability carried by
// every principal of the role.
func RoleMarker(role Role) Capability {
	return Capability("ROLE_" + string(role))
}

// CapabilitiesFor resolves a role to its ordered capability set. The marker
// capability comes first, followed by the static grant for the role. The
// result is deterministic; unknown roles are rejected, never defaulted.
func CapabilitiesFor(role Role) ([]Capability, error) {
	grant, ok := roleCapabilities[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	out := make([]Capability, 0, len(grant)+1)
	out = append(out, RoleMarker(role))
	out = append(out, grant...)
	return out, nil
}
