// Package runtime is the high-level entry point.
//
// Runtime runs the module side in-process against the reference host:
//
//	rt, err := runtime.New(runtime.Options{Config: cfg, Logger: log})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	rt.Main().Spawn(func(w *module.Context) {
//	    w.Log("hello from " + w.Name())
//	})
//	rt.Wait()
//
// Guest runs a compiled wasm module under the engine instead:
//
//	g, err := runtime.LoadGuest(ctx, wasmBytes, runtime.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close(ctx)
//	_, err = g.Run(ctx, "_start")
//	g.Wait()
package runtime
