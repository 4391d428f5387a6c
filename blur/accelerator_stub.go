//go:build nogpu

package blur

func acceleratorPresent() bool { return false }

func newAcceleratorExecutor(Options) (executor, error) {
	return nil, errNoAccelerator
}
