package domain

// DefaultDeviceID is the id of an account's primary device.
const DefaultDeviceID uint32 = 1

// Credentials is the fixed (user, password, signaling key) triple plus the
// device id. It is never mutated after construction.
type Credentials struct {
	User         string `json:"user"`
	Password     string `json:"password"`
	SignalingKey string `json:"signaling_key"` // base64, 52 bytes decoded
	Device       uint32 `json:"device_id,omitempty"`
}

// StaticCredentialsProvider serves one Credentials value to every component
// built from a receiver.
type StaticCredentialsProvider struct {
	creds Credentials
}

// NewStaticCredentialsProvider wraps the triple for the primary device.
func NewStaticCredentialsProvider(user, password, signalingKey string) *StaticCredentialsProvider {
	return &StaticCredentialsProvider{creds: Credentials{
		User:         user,
		Password:     password,
		SignalingKey: signalingKey,
		Device:       DefaultDeviceID,
	}}
}

// NewCredentialsProvider wraps an existing Credentials value.
func NewCredentialsProvider(c Credentials) *StaticCredentialsProvider {
	if c.Device == 0 {
		c.Device = DefaultDeviceID
	}
	return &StaticCredentialsProvider{creds: c}
}

func (p *StaticCredentialsProvider) User() string         { return p.creds.User }
func (p *StaticCredentialsProvider) Password() string     { return p.creds.Password }
func (p *StaticCredentialsProvider) SignalingKey() string { return p.creds.SignalingKey }
func (p *StaticCredentialsProvider) DeviceID() uint32     { return p.creds.Device }

// Compile-time assertion that StaticCredentialsProvider implements CredentialsProvider.
var _ CredentialsProvider = (*StaticCredentialsProvider)(nil)
