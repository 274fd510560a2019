// Package module runs the module side of the bridge in-process.
//
// A Module owns one linear memory, heap and resource table, and the
// completion bridge and worker manager built on them. Each execution
// context (the main context and every worker) is a Context with its own
// scratch buffer, host channel and executor.
//
//	m := module.New(host, module.Config{})
//	main := m.Main()
//	main.Log("starting")
//	main.Spawn(func(w *module.Context) {
//	    w.Log("hello from " + w.Name())
//	})
//	body, status, err := main.Fetch(ctx, "https://example.com")
//
// Module implements hostcall.Instance so a host can create worker contexts,
// and Context implements hostcall.Caller.
package module
