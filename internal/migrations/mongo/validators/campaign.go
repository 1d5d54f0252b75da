package validators

import "go.mongodb.org/mongo-driver/bson"

var CampaignValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"year",
			"start_date",
			"end_date",
			"cost_per_slot",
			"currency",
			"is_active",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"year": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  2000,
				"maximum":  2100,
			},

			"start_date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"end_date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"cost_per_slot": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"currency": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 3,
			},

			"is_active": bson.M{
				"bsonType": "bool",
			},
		},
	},
}
