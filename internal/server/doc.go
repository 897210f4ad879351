package server

// Startup sequence:
//
//   initializing  every dependency (database, presence store) runs once, in order
//        |
//      ready       router built: recovery, request log, CORS origin gate,
//        |         GET /, /health, /status, one group per RouteProvider
//        |
//     serving      listener bound on server.host:server.port, served in background
//
// Any failure before serving leaves the Manager in the failed state with no
// listener; cmd/server then exits non-zero.
//
// Route groups share one listener and one port:
//
//   /api/auth   AuthProvider (rate limited, public)
//   /api/user   GroupProvider (authenticated)
//   /api/shop   GroupProvider (authenticated)
//   /api/item   GroupProvider (authenticated)
//   /api/order  GroupProvider (authenticated)
//   /ws         RealtimeProvider (WebSocket upgrade, POST events)
//
// Usage:
//
//   mgr := server.NewManager(&server.ServerConfig{
//       HTTPAddress: cfg.Server.Host,
//       HTTPPort:    cfg.Server.Port,
//       CORS:        cfg.Server.CORS,
//   }, gate, logger)
//   mgr.AddDependency("database", store.Connect)
//   for _, p := range server.APIProviders(handlers, auth, limiter) {
//       mgr.AddProvider(p)
//   }
//   mgr.AddProvider(server.NewRealtimeProvider(cfg.Realtime.Path, hub))
//   if err := mgr.Start(ctx); err != nil { ... }
