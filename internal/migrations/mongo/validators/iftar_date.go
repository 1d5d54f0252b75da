package validators

import "go.mongodb.org/mongo-driver/bson"

var IftarDateValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"date",
			"year",
			"available",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"year": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  2000,
				"maximum":  2100,
			},

			"available": bson.M{
				"bsonType": "bool",
			},

			"sponsor_reference": bson.M{
				"bsonType":  []string{"string", "null"},
				"maxLength": 200,
			},

			"sponsor_name": bson.M{
				"bsonType":  []string{"string", "null"},
				"maxLength": 120,
			},

			"sponsor_email": bson.M{
				"bsonType": []string{"string", "null"},
			},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 1000,
			},

			"pending_since": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"sponsored_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
