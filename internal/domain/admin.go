package domain

// SystemStats feeds the admin dashboard
type SystemStats struct {
	TotalUsers     int64            `json:"total_users"`
	UsersByStatus  map[string]int64 `json:"users_by_status"`
	OnlineUsers    int64            `json:"online_users"`
	TotalContacts  int64            `json:"total_contacts"`
	LeadsByStatus  map[string]int64 `json:"leads_by_status"`
	SecurityEvents int64            `json:"security_events_today"`
}

// RoleChangeRequest is the payload of PUT /v1/admin/users/:id/role
type RoleChangeRequest struct {
	Role Role `json:"role" binding:"required,oneof=SUPERADMIN ADMIN USER GUEST"`
}
