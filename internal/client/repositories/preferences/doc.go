// Package preferences stores the user's settings as a single record under
// the "user_preferences" key of the durable store.
//
// Updates go through Service, which serialises read-modify-write cycles so
// concurrent updates to different fields never overwrite each other. Each
// write stamps the field's update time; Merge uses those stamps to combine a
// client and a server copy field by field.
package preferences
