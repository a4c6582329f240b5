package config

// resetGlobal clears the process-wide configuration between tests.
func resetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
