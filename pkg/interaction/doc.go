// Package interaction implements the SiLA request/response model on top of
// the feature model, the execution engine and the binary registry.
//
// Requests address nodes by fully qualified identifier:
//
//   - GetProperty, SubscribeProperty: read or stream a property
//   - Invoke: call a command; observable commands return an execution UUID
//   - ExecutionInfo, SubscribeExecution, SubscribeIntermediate, Result,
//     Cancel: follow an observable command execution
//   - Unsubscribe: end a subscription
//   - CreateBinaryUpload, UploadChunk, CreateBinaryDownload, GetChunk,
//     DeleteBinary: move binaries too large to send inline
//
// # Server Usage
//
// A Server is shared by all connections; each connection gets a Session
// that owns its subscriptions:
//
//	server := interaction.NewServer(interaction.DefaultConfig(), registry, engine, binaries, codec)
//	session := server.NewSession(func(notif *wire.Notification) {
//	    // Send notification to client
//	})
//	defer session.Close()
//
//	response := session.HandleRequest(ctx, request)
//
// Handlers read the call's metadata with MetadataFromContext.
//
// # Client Usage
//
// The Client correlates responses by message ID and routes notifications to
// typed streams:
//
//	client := interaction.NewClient(conn)
//
//	name, err := client.GetProperty(ctx, "org.silastandard/core/SiLAService/v1/Property/ServerName")
//
//	res, err := client.Invoke(ctx, target, params)
//	updates, err := client.SubscribeExecution(ctx, res.Confirmation.ExecutionUUID)
//	for info := range updates.Values() {
//	    // ...
//	}
//	responses, err := client.Result(ctx, res.Confirmation.ExecutionUUID)
//
// # Subscriptions
//
// Subscriptions are connection-scoped. Every subscription ends with a final
// notification, which carries an error if the stream failed. Notifications
// may arrive before the subscribe response; the client holds them until the
// stream is registered. When a session closes, its subscriptions end without
// final notifications.
package interaction
