package parse

import (
	"context"
	"fmt"
	"strings"
	"time"

	rtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Realtime holds the vehicle positions and trip updates of one or
// more GTFS-realtime feed messages.
type Realtime struct {
	// Header timestamp of the last message parsed.
	Timestamp uint64
	Entities  []*Entity

	// Number of vehicle positions seen.
	Vehicles int
	// Trip updates per schedule relationship, e.g. "scheduled" or
	// "canceled".
	Trips map[string]int
}

// A feed entity carrying a vehicle position, a trip update, or both.
type Entity struct {
	ID         string
	Vehicle    *VehiclePosition
	TripUpdate *TripUpdate
}

// The trip the entity refers to. The vehicle's trip reference wins.
func (e *Entity) TripID() string {
	if e.Vehicle != nil && e.Vehicle.TripID != "" {
		return e.Vehicle.TripID
	}
	if e.TripUpdate != nil {
		return e.TripUpdate.TripID
	}
	return ""
}

type VehicleStopStatus int

const (
	VehicleIncomingAt VehicleStopStatus = iota
	VehicleStoppedAt
	VehicleInTransitTo
)

type VehiclePosition struct {
	TripID        string
	RouteID       string
	VehicleID     string
	VehicleLabel  string
	Lat           float32
	Lon           float32
	Bearing       float32
	CurrentStopID string
	Status        VehicleStopStatus
	Timestamp     time.Time
}

type TripUpdate struct {
	TripID   string
	RouteID  string
	Canceled bool
	Updates  []*StopTimeUpdate
}

type StopRelationship int

const (
	StopScheduled StopRelationship = iota
	StopSkipped
	StopNoData
)

// Predicted arrival or departure. Time is zero when the feed only
// gave a delay.
type StopTimeEvent struct {
	Time  time.Time
	Delay time.Duration
}

type StopTimeUpdate struct {
	StopID       string
	StopSequence uint32
	Arrival      *StopTimeEvent
	Departure    *StopTimeEvent
	Relationship StopRelationship
}

// The predicted delay, taken from the departure when there is one.
func (u *StopTimeUpdate) Delay() (time.Duration, bool) {
	switch {
	case u.Departure != nil:
		return u.Departure.Delay, true
	case u.Arrival != nil:
		return u.Arrival.Delay, true
	}
	return 0, false
}

// ParseRealtime decodes full-dataset GTFS-realtime messages. Deleted
// entities and entities without a vehicle or trip update are dropped.
func ParseRealtime(ctx context.Context, messages [][]byte) (*Realtime, error) {
	rt := &Realtime{
		Entities: []*Entity{},
		Trips:    map[string]int{},
	}

	for i, message := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := decodeMessage(message)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		rt.Timestamp = msg.GetHeader().GetTimestamp()

		for _, entity := range msg.GetEntity() {
			if err := rt.add(entity); err != nil {
				return nil, fmt.Errorf("entity '%s': %w", entity.GetId(), err)
			}
		}
	}

	return rt, nil
}

func decodeMessage(data []byte) (*rtpb.FeedMessage, error) {
	msg := &rtpb.FeedMessage{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decoding protobuf: %w", err)
	}

	header := msg.GetHeader()
	switch v := header.GetGtfsRealtimeVersion(); v {
	case "1.0", "2.0":
	default:
		return nil, fmt.Errorf("unsupported gtfs_realtime_version '%s'", v)
	}
	if inc := header.GetIncrementality(); inc != rtpb.FeedHeader_FULL_DATASET {
		return nil, fmt.Errorf("unsupported incrementality %s", inc)
	}

	return msg, nil
}

func (rt *Realtime) add(entity *rtpb.FeedEntity) error {
	if entity.GetIsDeleted() || (entity.Vehicle == nil && entity.TripUpdate == nil) {
		return nil
	}

	e := &Entity{ID: entity.GetId()}

	if entity.Vehicle != nil {
		e.Vehicle = vehiclePosition(entity.Vehicle)
		rt.Vehicles++
	}

	if entity.TripUpdate != nil {
		tu, err := tripUpdate(entity.TripUpdate)
		if err != nil {
			return err
		}
		e.TripUpdate = tu
		relationship := entity.TripUpdate.GetTrip().GetScheduleRelationship()
		rt.Trips[strings.ToLower(relationship.String())]++
	}

	rt.Entities = append(rt.Entities, e)
	return nil
}

var vehicleStatuses = map[rtpb.VehiclePosition_VehicleStopStatus]VehicleStopStatus{
	rtpb.VehiclePosition_INCOMING_AT:   VehicleIncomingAt,
	rtpb.VehiclePosition_STOPPED_AT:    VehicleStoppedAt,
	rtpb.VehiclePosition_IN_TRANSIT_TO: VehicleInTransitTo,
}

func unixTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func vehiclePosition(vp *rtpb.VehiclePosition) *VehiclePosition {
	return &VehiclePosition{
		TripID:        vp.GetTrip().GetTripId(),
		RouteID:       vp.GetTrip().GetRouteId(),
		VehicleID:     vp.GetVehicle().GetId(),
		VehicleLabel:  vp.GetVehicle().GetLabel(),
		Lat:           vp.GetPosition().GetLatitude(),
		Lon:           vp.GetPosition().GetLongitude(),
		Bearing:       vp.GetPosition().GetBearing(),
		CurrentStopID: vp.GetStopId(),
		Status:        vehicleStatuses[vp.GetCurrentStatus()],
		Timestamp:     unixTime(int64(vp.GetTimestamp())),
	}
}

// Stop time updates are only kept for trips running to schedule.
func tripUpdate(update *rtpb.TripUpdate) (*TripUpdate, error) {
	trip := update.GetTrip()
	if trip == nil {
		return nil, fmt.Errorf("trip_update without trip")
	}

	tu := &TripUpdate{
		TripID:  trip.GetTripId(),
		RouteID: trip.GetRouteId(),
		Updates: []*StopTimeUpdate{},
	}

	switch trip.GetScheduleRelationship() {
	case rtpb.TripDescriptor_CANCELED:
		tu.Canceled = true
	case rtpb.TripDescriptor_SCHEDULED:
		for _, stu := range update.GetStopTimeUpdate() {
			u, err := stopTimeUpdate(stu)
			if err != nil {
				return nil, err
			}
			if u != nil {
				tu.Updates = append(tu.Updates, u)
			}
		}
	}

	return tu, nil
}

var stopRelationships = map[rtpb.TripUpdate_StopTimeUpdate_ScheduleRelationship]StopRelationship{
	rtpb.TripUpdate_StopTimeUpdate_SCHEDULED: StopScheduled,
	rtpb.TripUpdate_StopTimeUpdate_SKIPPED:   StopSkipped,
	rtpb.TripUpdate_StopTimeUpdate_NO_DATA:   StopNoData,
}

func stopTimeEvent(ev *rtpb.TripUpdate_StopTimeEvent) *StopTimeEvent {
	if ev == nil {
		return nil
	}
	return &StopTimeEvent{
		Time:  unixTime(ev.GetTime()),
		Delay: time.Duration(ev.GetDelay()) * time.Second,
	}
}

// Returns nil for relationships not supported, such as the
// UNSCHEDULED updates of frequency-based trips.
func stopTimeUpdate(stu *rtpb.TripUpdate_StopTimeUpdate) (*StopTimeUpdate, error) {
	if stu.StopId == nil && stu.StopSequence == nil {
		return nil, fmt.Errorf("stop_time_update without stop_id or stop_sequence")
	}

	relationship, ok := stopRelationships[stu.GetScheduleRelationship()]
	if !ok {
		return nil, nil
	}

	return &StopTimeUpdate{
		StopID:       stu.GetStopId(),
		StopSequence: stu.GetStopSequence(),
		Arrival:      stopTimeEvent(stu.Arrival),
		Departure:    stopTimeEvent(stu.Departure),
		Relationship: relationship,
	}, nil
}
