// Package pjlink controls networked video projectors over the PJLink
// line-oriented TCP protocol, individually or as named groups.
//
// # Basic Usage
//
//	registry, err := pjlink.NewRegistry([]pjlink.DeviceDescriptor{
//	    {Nickname: "left", Host: "10.10.10.2", Groups: []string{"front"}, Aliases: []string{"l"}},
//	    {Nickname: "right", Host: "10.10.10.3", Groups: []string{"front"}, Aliases: []string{"r"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fleet, err := pjlink.NewFleet(registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fleet.Close()
//
//	report, err := fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionOn), pjlink.TargetAll())
//
// Each projector in the report is attempted independently; partial
// failures are enumerated on the report rather than raised.
//
// # Configuration
//
// Sessions and fleets accept functional options:
//
//	fleet, err := pjlink.NewFleet(registry,
//	    pjlink.WithConnectTimeout(10*time.Second),
//	    pjlink.WithReadTimeout(5*time.Second),
//	    pjlink.WithLogger(slog.Default()),
//	)
//
// # Protocol
//
// PJLink is an ASCII request/response protocol on TCP port 4352; each line
// ends with a single carriage return. This package implements Class 1
// commands plus the Class 2 FREZ screen freeze. The optional
// authentication handshake is not supported: a projector requiring it is
// reported as a protocol error.
package pjlink
