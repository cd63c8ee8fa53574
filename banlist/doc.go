// Package banlist is a persistent list of banned peer addresses.
//
// A Store plugs into the inbound pipeline twice: Blocked as a
// dispatch.BlockFunc and Admit as a session.NewSessionHook. Bans are keyed by
// IP address (ports are ignored), may carry an expiry, and survive restarts
// when the store is opened on a file.
//
//	bans, err := banlist.Open("/var/lib/raknetd/bans.sqlite", logger)
//	if err != nil {
//	    return err
//	}
//	dispatcher.Block(bans.Blocked)
//	registry.OnNewSession(bans.Admit)
package banlist
