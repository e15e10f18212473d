// Package device provides the Device Registry for womgr.
//
// The registry owns the set of managed endpoints. Each registered device
// carries three capabilities:
//
//   - WakeSwitch: sends a Wake-on-LAN magic packet
//   - PingSensor: probes reachability with the system ping utility
//   - SystemSwitch: launches restart and shutdown commands
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────┐  │
//	│  │    Registry    │   │     Record     │   │   Executor   │  │
//	│  │ (registry.go)  │──▶│  (types.go)    │──▶│  (exec.go)   │  │
//	│  │                │   │                │   │              │  │
//	│  │ • name index   │   │ • Wake()       │   │ • LookPath   │  │
//	│  │ • MAC/IP sets  │   │ • Probe()      │   │ • Run        │  │
//	│  │ • observers    │   │ • System()     │   │ • Start      │  │
//	│  └────────────────┘   └────────────────┘   └──────────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//
// # Uniqueness
//
// Name, MAC and IP are each unique across live records. The check and the
// reservation happen under one lock, so two concurrent registrations for the
// same key cannot both succeed. MAC and IP are compared in canonical form:
// "aa-bb-cc-dd-ee-ff" and "AA:BB:CC:DD:EE:FF" are the same device.
//
// # Usage
//
//	reg := device.NewRegistry(device.Options{
//	    Wake:         device.WakeTarget{Broadcast: "255.255.255.255", Port: 9},
//	    ProbeTimeout: 2 * time.Second,
//	    RemovalGrace: 5 * time.Second,
//	    UseSudo:      true,
//	})
//	reg.SetLogger(log)
//
//	rec, err := reg.Register(ctx, device.Params{
//	    Name: "Media Server",
//	    MAC:  "AA:BB:CC:DD:EE:FF",
//	    IP:   "192.168.1.20",
//	    OS:   "linux",
//	})
//	if err != nil {
//	    return err
//	}
//	online := rec.Probe().Probe(ctx)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package device
