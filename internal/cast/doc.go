// Package cast holds the control-session handle for a Cast receiver.
//
// The Cast v2 remote-control protocol itself is not implemented here. A
// Session binds a device address to the stream published by the broadcast
// server and delegates every command to a Controller supplied by the caller:
//
//	session, err := engine.CreateClient("Kitchen")
//	if err != nil {
//	    return err
//	}
//	session.SetStream(server)
//	session.SetController(myController)
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//
// Connect asks the controller to launch the default media receiver and load
// http://{localIp}:{port}/ as a LIVE stream. A controller error closes the
// session; the caller decides whether to open a new one.
package cast
