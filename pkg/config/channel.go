package config

// ChannelConfig describes one radio channel kind and its endpoint.
// Example YAML:
// channels:
//   - kind: udp
//     listen: ":16000"
//   - kind: quic
//     listen: ":16001"
//   - kind: mem
//     listen: "inproc://test"
type ChannelConfig struct {
	Kind   string `mapstructure:"kind"`
	Listen string `mapstructure:"listen"`
	// Extra holds channel-specific options (reserved for future use)
	Extra map[string]any `mapstructure:"extra"`
}
