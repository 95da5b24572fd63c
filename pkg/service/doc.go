// Package service ties the lower-level packages together into a runnable
// SiLA server and a matching client.
//
// # Server
//
// A Server carries the SiLAService feature plus any number of features
// given to New. It owns the execution engine, the binary registry and the
// request dispatcher, accepts framed connections over TCP or TLS and, when
// enabled, advertises itself as _sila._tcp over mDNS:
//
//	config := service.DefaultConfig()
//	config.Info.Name = "Incubator"
//	config.Discovery = true
//
//	server, err := service.New(config, examples.All()...)
//	if err != nil {
//	    return err
//	}
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Stop()
//
// Each connection gets its own session. Requests on a connection are
// handled concurrently and answered as they finish, so a command waiting
// for an upload does not block the upload's chunks. Subscriptions end with
// their connection; observable command executions do not.
//
// Renaming the server through SetServerName updates the mDNS announcement.
//
// # Client
//
// Dial connects to a server and returns a Client that exposes the full
// interaction API:
//
//	client, err := service.Dial(ctx, "lab-pc:50052", service.DefaultClientConfig())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	res, err := client.Invoke(ctx, "org.silastandard/examples/GreetingProvider/v1/Command/SayHello",
//	    map[string]wire.Value{"Name": wire.Str("Lab")})
//
// DialService connects to a server found with a discovery.Browser.
//
// # Lifecycle
//
// A server moves from IDLE through STARTING to RUNNING, and from STOPPING
// to STOPPED. Stop ends every execution and transfer; a stopped server
// cannot be started again.
package service
