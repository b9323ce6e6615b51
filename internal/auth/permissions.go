package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermMovementScan   Permission = "scan:movement"
	PermCanteenScan    Permission = "scan:canteen"
	PermVerifyScan     Permission = "scan:verify"
	PermOfflineSync    Permission = "sync:offline"
	PermRecordsRead    Permission = "records:read"
	PermDeviceManage   Permission = "device:manage"
	PermAuditRead      Permission = "audit:read"
	PermStudentManage  Permission = "student:manage"
	PermRecordsCleanup Permission = "records:cleanup"
)

// tierPermissions maps each tier to its granted permissions.
// This is the single source of truth for the authorisation model.
// Hostel scoping is applied separately via Identity.CanAccessHostel.
var tierPermissions = map[Tier][]Permission{
	TierSecurity: {
		PermMovementScan,
		PermOfflineSync,
	},
	TierCanteen: {
		PermCanteenScan,
		PermOfflineSync,
	},
	TierSuper: {
		PermMovementScan,
		PermCanteenScan,
		PermVerifyScan,
		PermOfflineSync,
		PermRecordsRead,
	},
	TierAdmin: {
		PermMovementScan,
		PermCanteenScan,
		PermVerifyScan,
		PermOfflineSync,
		PermRecordsRead,
		PermDeviceManage,
		PermAuditRead,
		PermStudentManage,
		PermRecordsCleanup,
	},
}

// HasPermission returns true if the given role has the specified permission.
// Unknown roles and device_verified have none.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := tierPermissions[role.Tier()]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := tierPermissions[role.Tier()]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// IsHostelScoped returns true if the role's actions are limited to its own hostel.
func IsHostelScoped(role Role) bool {
	return role.Tier() != TierAdmin
}
