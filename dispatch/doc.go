// Package dispatch routes inbound datagrams to message handlers.
//
// For each datagram the Dispatcher consults the BlockFuncs, decodes the
// message through the catalog, resolves the session of the (sender,
// receiver) pair and calls the Handler bound to the message id. Handle
// creates the session on first contact; HandleExisting only serves pairs the
// registry already knows. Keepalive messages and frame sets are handled out
// of the box; frame bodies are reassembled and delivered like datagrams.
package dispatch
