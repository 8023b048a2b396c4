// upub-fed/core is an ActivityPub federation engine.
// Copyright (C) 2026 The upub-fed/core authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package model defines the relational entities of §3: plain structs with
// no behavior. internal/store maps them to SQL; every other package only
// imports this one for the shapes it passes around.
package model

import "time"

// ActorType enumerates the actor_type column domain.
type ActorType string

const (
	ActorPerson       ActorType = "Person"
	ActorService      ActorType = "Service"
	ActorApplication  ActorType = "Application"
	ActorGroup        ActorType = "Group"
	ActorOrganization ActorType = "Organization"
)

// ObjectType enumerates the object_type column domain.
type ObjectType string

const (
	ObjectGeneric  ObjectType = "Object"
	ObjectNote     ObjectType = "Note"
	ObjectArticle  ObjectType = "Article"
	ObjectEvent    ObjectType = "Event"
	ObjectPlace    ObjectType = "Place"
	ObjectProfile  ObjectType = "Profile"
	ObjectDocument ObjectType = "Document"
	ObjectImage    ObjectType = "Image"
	ObjectVideo    ObjectType = "Video"
	ObjectAudio    ObjectType = "Audio"
	ObjectPage     ObjectType = "Page"
)

// ActivityType enumerates the activity_type column domain.
type ActivityType string

const (
	ActivityCreate          ActivityType = "Create"
	ActivityLike            ActivityType = "Like"
	ActivityEmojiReact      ActivityType = "EmojiReact"
	ActivityAnnounce        ActivityType = "Announce"
	ActivityFollow          ActivityType = "Follow"
	ActivityAccept          ActivityType = "Accept"
	ActivityTentativeAccept ActivityType = "TentativeAccept"
	ActivityReject          ActivityType = "Reject"
	ActivityTentativeReject ActivityType = "TentativeReject"
	ActivityUndo            ActivityType = "Undo"
	ActivityDelete          ActivityType = "Delete"
	ActivityUpdate          ActivityType = "Update"
	ActivityAdd             ActivityType = "Add"
	ActivityRemove          ActivityType = "Remove"
	ActivityMove            ActivityType = "Move"
	ActivityView            ActivityType = "View"
	ActivityBlock           ActivityType = "Block"
)

// Instance is one row per remote (or the local) server.
type Instance struct {
	Internal  int64
	Domain    string
	Name      *string
	Software  *string
	Version   *string
	Icon      *string
	DownSince *time.Time
	Users     *int
	Posts     *int
	Published time.Time
	Updated   time.Time
}

// Actor is a user, bot, group, application, or service.
type Actor struct {
	Internal         int64
	APID             string
	ActorType        ActorType
	Domain           int64 // Instance.Internal
	PreferredUser    string
	Name             *string
	Summary          *string
	Icon             *string
	Image            *string
	Fields           map[string]string
	Inbox            *string
	Outbox           *string
	SharedInbox      *string
	Following        *string
	Followers        *string
	FollowingCount   int
	FollowersCount   int
	StatusesCount    int
	PublicKeyPEM     string
	PrivateKeyPEM    *string // non-nil only for locally-owned actors
	AlsoKnownAs      []string
	MovedTo          *string
	Published        time.Time
	Updated          time.Time
}

// IsLocal reports whether this actor is owned by this server (invariant 2
// of §3: PrivateKeyPEM is set iff the actor is local).
func (a *Actor) IsLocal() bool { return a.PrivateKeyPEM != nil }

// Object is content referenced by activities.
type Object struct {
	Internal     int64
	APID         string
	ObjectType   ObjectType
	AttributedTo *int64 // Actor.Internal
	Name         *string
	Summary      *string
	Content      *string
	Sensitive    bool
	InReplyTo    *int64 // Object.Internal
	Context      *string
	Quote        *string
	Image        *string
	URL          *string
	Published    time.Time
	Updated      time.Time
	To           []string
	BTo          []string
	CC           []string
	BCC          []string
	Audience     *string
	Replies      int
	Likes        int
	Announces    int
}

// Activity is a typed action with addressing.
type Activity struct {
	Internal     int64
	APID         string
	ActivityType ActivityType
	Actor        int64 // Actor.Internal
	Object       *string
	Target       *string
	Content      *string
	Published    time.Time
	To           []string
	BTo          []string
	CC           []string
	BCC          []string
}

// Addressing is the central permission/visibility materialization (§3
// invariant 6): the single source of truth for read authorization.
type Addressing struct {
	Internal  int64
	Actor     *int64 // NULL means public
	Instance  *int64
	Activity  *int64
	Object    *int64
	Published time.Time
}

// Relation is a Follow edge; Accept is nil until the follow is accepted.
type Relation struct {
	Internal  int64
	Follower  int64 // Actor.Internal
	Following int64 // Actor.Internal
	Activity  int64 // the Follow activity
	Accept    *int64
}

// Like is UNIQUE(Actor, Object).
type Like struct {
	Internal  int64
	Actor     int64
	Object    int64
	Activity  int64
	Content   *string
	Published time.Time
}

// Announce records a share of an Object by an Actor.
type Announce struct {
	Internal  int64
	Actor     int64
	Object    int64
	Activity  int64
	Published time.Time
}

// Attachment is a media/link attached to an Object.
type Attachment struct {
	Internal     int64
	Object       int64
	URL          string
	DocumentType string
	Name         *string
	MediaType    string
	Published    time.Time
}

// Mention references an actor by ap_id string (resolution is best-effort).
type Mention struct {
	Internal  int64
	Object    int64
	ActorAPID string
	Published time.Time
}

// Hashtag tags an Object with a name.
type Hashtag struct {
	Internal int64
	Object   int64
	Name     string
}

// Credential is a local login/password pair.
type Credential struct {
	Internal int64
	Actor    int64
	Login    string
	PassHash []byte
	Salt     []byte
	Active   bool
}

// Session maps an opaque bearer token to an actor.
type Session struct {
	Internal int64
	Actor    int64
	Secret   string
	Expires  time.Time
}

// UserConfig holds per-local-actor preferences.
type UserConfig struct {
	Internal int64
	Actor    int64
	Key      string
	Value    string
}

// JobType enumerates the durable job queue's work kinds.
type JobType string

const (
	JobInbound  JobType = "Inbound"
	JobOutbound JobType = "Outbound"
	JobDelivery JobType = "Delivery"
)

// Job is the durable work queue row; Activity is UNIQUE so an activity is
// processed at most once (§3 invariant 7).
type Job struct {
	Internal  int64
	JobType   JobType
	Actor     string // ap_id of the acting actor
	Target    *string
	Activity  string // ap_id, UNIQUE
	Payload   *string // raw JSON
	Published time.Time
	NotBefore time.Time
	Attempt   int
}

// Notification records that an activity is relevant to an actor's feed.
type Notification struct {
	Internal  int64
	Activity  int64
	Actor     int64
	Seen      bool
	Published time.Time
}
