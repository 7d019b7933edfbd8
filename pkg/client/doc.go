/*
Package client is a small Go client for the netpanel HTTP API.

It is used by the netpanel CLI for administrative commands that go through a
running server rather than the data directory:

	c, err := client.NewClient("localhost:8000")
	if err != nil {
		return err
	}
	if _, err := c.Login("alice", password); err != nil {
		return err
	}
	snaps, err := c.ListSnapshots()

Every call uses a fixed timeout. Non-2xx responses are returned as *APIError
carrying the status code and the server's "detail" message; IsStatus checks
for a specific code.
*/
package client
