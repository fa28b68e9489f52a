// Package openmeteo provides a client for the Open-Meteo forecast API at
// 15-minute resolution.
//
// The client fetches a 72-hour forecast window for a plant's coordinates,
// starting at an hour-quantized cycle instant, and converts the provider's
// parallel-array JSON into a sequence of typed weather points. Channels the
// provider omits are left nil; the first raw sample is dropped so the first
// persisted point sits 15 minutes after the cycle (a zero-horizon prediction
// would otherwise compare a forecast against itself).
//
// Basic usage:
//
//	client := openmeteo.NewClient("https://api.open-meteo.com/v1/forecast", loc)
//
//	forecast, err := client.Fetch(ctx, plant, cycleStart)
//	if err != nil {
//		// plant is skipped for this cycle
//	}
//
//	for _, p := range forecast.Points {
//		// p.ShortwaveRadiation may be nil
//	}
package openmeteo
