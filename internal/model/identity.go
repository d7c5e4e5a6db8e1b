package model

import (
	"sort"
	"strconv"
)

// Role 是用户角色，决定其能力集合。
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleViewer  Role = "viewer"
)

// Valid 判断角色是否属于已知的封闭集合。
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capability 是授权检查的最小单位。
type Capability string

const (
	CapRead           Capability = "read"
	CapWrite          Capability = "write"
	CapExport         Capability = "export"
	CapManageUsers    Capability = "manage_users"
	CapViewStatistics Capability = "view_statistics"
)

// CapabilitySet 是能力的集合。
type CapabilitySet map[Capability]struct{}

func newCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

var roleCapabilities = map[Role]CapabilitySet{
	RoleAdmin:   newCapabilitySet(CapRead, CapWrite, CapExport, CapManageUsers, CapViewStatistics),
	RoleManager: newCapabilitySet(CapRead, CapWrite, CapExport, CapManageUsers, CapViewStatistics),
	RoleUser:    newCapabilitySet(CapRead, CapWrite),
	RoleViewer:  newCapabilitySet(CapRead),
}

// CapabilitiesOf 返回角色的能力集合，未知角色没有任何能力。
func CapabilitiesOf(role Role) CapabilitySet {
	if set, ok := roleCapabilities[role]; ok {
		return set
	}
	return CapabilitySet{}
}

// Identity 是一次请求中经过认证的调用者，在请求生命周期内不可变。
type Identity struct {
	UserID       uint
	Username     string
	Role         Role
	Organization string
	caps         CapabilitySet
}

// NewIdentity 根据数据库中的用户构建身份。
func NewIdentity(u *User) Identity {
	return Identity{
		UserID:       u.ID,
		Username:     u.Username,
		Role:         u.Role,
		Organization: u.Organization,
		caps:         CapabilitiesOf(u.Role),
	}
}

// Can 判断身份是否拥有某项能力。admin 拥有全部能力。
func (i Identity) Can(c Capability) bool {
	if i.Role == RoleAdmin {
		return true
	}
	_, ok := i.caps[c]
	return ok
}

// Capabilities 返回排序后的能力列表。
func (i Identity) Capabilities() []Capability {
	out := make([]Capability, 0, len(i.caps))
	for c := range i.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// IsAdmin 判断是否管理员。
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Key 是限流和日志中使用的身份键。
func (i Identity) Key() string {
	return strconv.FormatUint(uint64(i.UserID), 10)
}
