package models

// Host is one inventory host. Only hosts with an IP are addressable targets.
type Host struct {
	Name       string   `json:"name"`
	IP         string   `json:"ip,omitempty"`
	User       string   `json:"user,omitempty"`
	Connection string   `json:"connection,omitempty"`
	Groups     []string `json:"groups"`
}

// CreateHostRequest contains the data for adding a host to the inventory.
type CreateHostRequest struct {
	Name       string `json:"name" binding:"required"`
	IP         string `json:"ip"`
	User       string `json:"user"`
	Connection string `json:"connection"`
	Group      string `json:"group"`
}

// DeleteHostRequest names the host to remove.
type DeleteHostRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateGroupRequest contains the data for a new inventory group.
type CreateGroupRequest struct {
	GroupName string `json:"group_name" binding:"required"`
	Hosts     []Host `json:"hosts" binding:"required"`
}

// DeleteGroupRequest names the group to remove.
type DeleteGroupRequest struct {
	GroupName string `json:"group_name" binding:"required"`
}
