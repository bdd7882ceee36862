// Package websocket pushes status notifications to browsers.
//
// The Hub implements census.Notifier: every notification raised while a
// dataset is fetched and transformed is wrapped in an events.WebSocketMessage
// and broadcast to all connected clients. Slow clients are disconnected
// rather than allowed to block the pipeline.
package websocket
