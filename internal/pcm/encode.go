package pcm

// Encode converts normalized float32 samples into little-endian signed
// 16-bit PCM. Samples are clamped to [-1, 1]; negative values scale by
// 32768 and non-negative by 32767 so the result always fits in an int16.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// Decode converts little-endian s16 PCM bytes back to int16 samples.
// Trailing odd bytes are ignored.
func Decode(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}
