// Package process supervises long-running helper commands whose output is
// a stream of lines, such as "nmcli device monitor".
//
// Features:
//   - Start/stop with graceful shutdown of the whole process group
//   - Automatic restart after unexpected exit, with a fixed delay
//   - Each stdout line handed to a callback; stderr logged at debug level
//   - Status and restart statistics for diagnostics
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "nmcli-monitor",
//	    Binary: "nmcli",
//	    Args:   []string{"device", "monitor", "wlan0"},
//	    OnLine: func(line string) { ... },
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
