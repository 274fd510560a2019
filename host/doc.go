// Package host is a reference host for the bridge protocol.
//
// A Host answers the built-in library (logging, TLS layout, parallelism,
// worker creation), registers named libraries on demand and delivers their
// asynchronous results back to the context that asked:
//
//	h := host.New(cfg, host.WithLogger(log))
//	h.Bind(instance)
//	...
//	h.Wait()
//	h.Close()
//
// Two libraries are bundled. "fetch" performs HTTP GETs restricted by
// AllowedHosts and FetchTimeout; "timer" completes after a delay.
// Deliveries to one context run in order on that context's Loop.
//
// Configuration is YAML (LoadConfig), validated with struct tags, and
// described by ConfigSchema.
package host
