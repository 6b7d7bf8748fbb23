package config

// MountOptions holds high-level settings for mounting.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug  bool   // fuse debug logs
	FsName string // mount's FsName
	Name   string // mount's Name
}

// MountOptionsOverride is the partial form of [MountOptions].
type MountOptionsOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
}

func (m *MountOptions) merge(o *MountOptionsOverride) {
	if o == nil {
		return
	}
	if o.FsName != nil {
		m.FsName = *o.FsName
	}
	if o.Name != nil {
		m.Name = *o.Name
	}
}
