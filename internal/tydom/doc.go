// Package tydom talks to a Delta Dore Tydom hub.
//
// The hub speaks HTTP/1.1 messages carried inside websocket frames. Client
// owns that session: digest authentication, request/response correlation by
// Transac-Id, keep-alive, reconnection with backoff and a circuit breaker
// around requests. Messages the hub sends on its own are handed to a single
// consumer through a bounded queue.
//
// Gateway sits on top of the session and exposes what the cover bridge
// needs:
//
//	gw := tydom.NewGateway(tydom.NewClient(cfg.Hub), tydom.GatewayOptions{Logger: log})
//	if err := gw.Connect(ctx); err != nil { ... }
//	gw.SubscribeChanges(func(ev tydom.ChangeEvent) { ... })
//	devices, err := gw.GetAllInfo(ctx)
//	err = gw.SetPosition(ctx, id, tydom.DataPointPosition, 100)
//
// Only device-data updates (PUT, status 200) reach SubscribeChanges
// handlers.
package tydom
