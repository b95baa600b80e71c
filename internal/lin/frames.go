package lin

// Frame map of the 81A 955 555 A rain/light sensor. The data frames carry
// Enhanced checksums; the two diagnostic frames always use Classic.
const (
	FrameCommand      = 0x20 // master command: ignition, wiper, sensitivity
	FrameLight        = 0x23 // forward light + alive counter
	FrameEnv          = 0x29 // temperatures, solar
	FrameRain         = 0x30 // rain / FIR, inactive under default coding
	FrameDiagRequest  = 0x3C // master diagnostic request
	FrameDiagResponse = 0x3D // slave diagnostic response
)

// ClassFor returns the checksum class the sensor expects for a frame ID.
// The mixed-class rule is a protocol constant, not configuration.
func ClassFor(fid byte) ChecksumClass {
	if fid == FrameDiagRequest || fid == FrameDiagResponse {
		return ClassicChecksum
	}
	return EnhancedChecksum
}
