//go:build !gocv

package tracking

// NewYuNet reports ErrYuNetUnavailable in builds without gocv.
func NewYuNet(DetectorConfig) (Detector, error) {
	return nil, ErrYuNetUnavailable
}
